package core

import "testing"

func TestStoreComputeRegistrationDeeply(t *testing.T) {
	leaf := NewResource("leaf").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return "leaf", nil }).
		Build()
	mid := NewResource("mid").
		RegisterStatic(leaf).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return "mid", nil }).
		Build()
	root := NewResource("root").
		RegisterStatic(mid).
		Build()

	s := NewStore()
	if err := s.computeRegistrationDeeply(root, nil); err != nil {
		t.Fatalf("computeRegistrationDeeply: %v", err)
	}

	for _, id := range []string{"leaf", "mid", "root"} {
		if _, ok := s.GetResource(id); !ok {
			t.Errorf("expected %q to be registered", id)
		}
	}

	order := s.ResourceOrder()
	if len(order) != 3 || order[2] != "root" {
		t.Errorf("expected root registered last, got order %v", order)
	}
}

func TestStoreDuplicateRegistrationRejected(t *testing.T) {
	a := NewResource("dup").Build()
	b := NewResource("dup").Build()
	root := NewResource("root").RegisterStatic(a, b).Build()

	s := NewStore()
	err := s.computeRegistrationDeeply(root, nil)
	if err == nil {
		t.Fatal("expected duplicate registration error")
	}
	var coreErr *CoreError
	if ce, ok := err.(*CoreError); ok {
		coreErr = ce
	}
	if coreErr == nil || coreErr.ErrKind != ErrKindDuplicateRegistration {
		t.Errorf("expected ErrKindDuplicateRegistration, got %v", err)
	}
}

func TestStoreLockRejectsFurtherRegistration(t *testing.T) {
	root := NewResource("root").Build()
	s := NewStore()
	if err := s.computeRegistrationDeeply(root, nil); err != nil {
		t.Fatalf("computeRegistrationDeeply: %v", err)
	}
	s.Lock()

	late := NewResource("late").Build()
	if err := s.storeResource(late); err == nil {
		t.Fatal("expected store to reject registration after Lock")
	}
}

func TestStoreResourcesWithTag(t *testing.T) {
	tagged := NewResource("tagged").Tags(testTag).Build()
	untagged := NewResource("untagged").Build()
	root := NewResource("root").RegisterStatic(tagged, untagged).Build()

	s := NewStore()
	if err := s.computeRegistrationDeeply(root, nil); err != nil {
		t.Fatalf("computeRegistrationDeeply: %v", err)
	}

	found := s.ResourcesWithTag(testTag.ID())
	if len(found) != 1 || found[0].id != "tagged" {
		t.Errorf("expected exactly [tagged], got %v", found)
	}
}

var testTag = sentinelRef{"test.tag", KindTag}

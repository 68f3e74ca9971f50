package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcile_Diff(t *testing.T) {
	toInsert, toDelete := Reconcile(
		[]string{"a", "b", "c"},
		[]string{"b", "c", "d"},
	)

	assert.Equal(t, []string{"a"}, toInsert)
	assert.Equal(t, []string{"d"}, toDelete)
}

func TestReconcile_Idempotent(t *testing.T) {
	set := []string{"a", "b", "c"}

	toInsert, toDelete := Reconcile(set, set)

	assert.Empty(t, toInsert)
	assert.Empty(t, toDelete)
}

func TestReconcile_ApplyReachesDesired(t *testing.T) {
	desired := []string{"a", "c", "e"}
	current := []string{"a", "b", "d"}

	toInsert, toDelete := Reconcile(desired, current)

	result := make(map[string]struct{})
	for _, k := range current {
		result[k] = struct{}{}
	}
	for _, k := range toDelete {
		delete(result, k)
	}
	for _, k := range toInsert {
		result[k] = struct{}{}
	}

	assert.Len(t, result, len(desired))
	for _, k := range desired {
		assert.Contains(t, result, k)
	}
}

func TestReconcile_EmptySides(t *testing.T) {
	toInsert, toDelete := Reconcile([]string{"a", "b"}, nil)
	assert.Equal(t, []string{"a", "b"}, toInsert)
	assert.Empty(t, toDelete)

	toInsert, toDelete = Reconcile(nil, []string{"a", "b"})
	assert.Empty(t, toInsert)
	assert.Equal(t, []string{"a", "b"}, toDelete)
}

func TestReconcile_CollapsesDuplicates(t *testing.T) {
	toInsert, toDelete := Reconcile(
		[]string{"a", "a", "b"},
		[]string{"c", "c"},
	)

	assert.Equal(t, []string{"a", "b"}, toInsert)
	assert.Equal(t, []string{"c"}, toDelete)
}

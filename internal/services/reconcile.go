package services

// Reconcile computes the diff that moves current to desired:
// toInsert = desired - current, toDelete = current - desired.
// Pure and order-independent; duplicates in either input are collapsed.
// Reconciling a set against itself yields two empty slices, so applying
// the same desired list twice is a no-op.
//
// Used for group membership target lists and project-to-group
// associations; callers apply the diff inside their own transaction.
func Reconcile[K comparable](desired, current []K) (toInsert, toDelete []K) {
	desiredSet := make(map[K]struct{}, len(desired))
	for _, k := range desired {
		desiredSet[k] = struct{}{}
	}
	currentSet := make(map[K]struct{}, len(current))
	for _, k := range current {
		currentSet[k] = struct{}{}
	}

	for _, k := range desired {
		if _, ok := currentSet[k]; !ok {
			toInsert = append(toInsert, k)
			// collapse duplicates in desired
			currentSet[k] = struct{}{}
		}
	}
	for _, k := range current {
		if _, ok := desiredSet[k]; !ok {
			toDelete = append(toDelete, k)
			desiredSet[k] = struct{}{}
		}
	}
	return toInsert, toDelete
}

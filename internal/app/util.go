package app

// difference returns elements in a that are not in b.
func difference(a, b []string) []string {
	bSet := make(map[string]struct{}, len(b))
	for _, v := range b {
		bSet[v] = struct{}{}
	}

	var result []string
	for _, v := range a {
		if _, exists := bSet[v]; !exists {
			result = append(result, v)
		}
	}
	return result
}

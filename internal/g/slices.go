package g

func FromStrings[T ~string](strings []string) []T {
	result := make([]T, 0, len(strings))
	for _, s := range strings {
		result = append(result, T(s))
	}
	return result
}

package batch

// span is a half-open range of file indexes.
type span struct {
	start, end int
}

// partition splits n items into consecutive chunks of at most size.
func partition(n, size int) []span {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	chunks := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		chunks = append(chunks, span{start: start, end: min(start+size, n)})
	}
	return chunks
}

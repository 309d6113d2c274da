package chunker

import "bytes"

// maxLineLength flags a sampled line as minified (spec §4.3 skip conditions).
const maxLineLength = 1000

// binarySampleSize is how much of a file's head is inspected for a NUL byte.
const binarySampleSize = 1024

// IsBinary reports whether the first binarySampleSize bytes of content
// contain a NUL byte.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > binarySampleSize {
		n = binarySampleSize
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

// IsMinifiedOrGenerated applies two cheap content heuristics: any of the
// first few lines exceeding maxLineLength (minified JS/CSS), or a header
// comment announcing the file is generated.
func IsMinifiedOrGenerated(content []byte) bool {
	sample := content
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	lines := bytes.SplitN(sample, []byte{'\n'}, 6)
	for i, line := range lines {
		if i >= 5 {
			break
		}
		if len(line) > maxLineLength {
			return true
		}
	}

	header := content
	if len(header) > 500 {
		header = header[:500]
	}
	header = bytes.ToLower(header)
	markers := [][]byte{[]byte("generated by"), []byte("auto-generated"), []byte("do not edit")}
	for _, m := range markers {
		if bytes.Contains(header, m) {
			return true
		}
	}
	return false
}

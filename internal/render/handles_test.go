package render

import "unsafe"

// id reads a handle's bits as an integer. vulkan-go handles point at
// incomplete C types, which testify cannot reflect on.
func id[H any](h H) uintptr {
	return *(*uintptr)(unsafe.Pointer(&h))
}

func ids[H any](hs ...H) []uintptr {
	out := make([]uintptr, len(hs))
	for i, h := range hs {
		out[i] = id(h)
	}
	return out
}

package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"
)

var (
	ErrNoSuitableDevice      = errors.New("no suitable GPU found")
	ErrNoMemoryType          = errors.New("no suitable memory type")
	ErrCrossDeviceCopy       = errors.New("cannot copy between regions of different devices")
	ErrValidationUnavailable = errors.New("requested validation layers not available")
	ErrInvalidShader         = errors.New("invalid shader code")
)

// vkCheck turns a non-success result into an error annotated with op and the
// caller's stack.
func vkCheck(res vulkan.Result, op string) error {
	if res == vulkan.Success {
		return nil
	}
	return errors.WrapWithDepth(1, vulkan.Error(res), op)
}

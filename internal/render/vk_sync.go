package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"
)

// SyncObjects holds the per-slot image-available semaphores and in-flight
// fences, plus one render-finished semaphore per swapchain image.
type SyncObjects struct {
	drv Driver

	ImageAvailable []vulkan.Semaphore
	RenderFinished []vulkan.Semaphore
	InFlight       []vulkan.Fence
}

// NewSyncObjects creates fences already signaled so the first wait on each
// slot returns immediately.
func NewSyncObjects(drv Driver, frames, images int) (*SyncObjects, error) {
	s := &SyncObjects{drv: drv}
	if err := s.createSemaphores(frames, images); err != nil {
		s.Destroy()
		return nil, err
	}
	for i := 0; i < frames; i++ {
		fence, err := drv.CreateFence(true)
		if err != nil {
			s.Destroy()
			return nil, errors.Wrapf(err, "in-flight fence %d", i)
		}
		s.InFlight = append(s.InFlight, fence)
	}
	return s, nil
}

func (s *SyncObjects) createSemaphores(frames, images int) error {
	for i := 0; i < frames; i++ {
		sem, err := s.drv.CreateSemaphore()
		if err != nil {
			return errors.Wrapf(err, "image-available semaphore %d", i)
		}
		s.ImageAvailable = append(s.ImageAvailable, sem)
	}
	for i := 0; i < images; i++ {
		sem, err := s.drv.CreateSemaphore()
		if err != nil {
			return errors.Wrapf(err, "render-finished semaphore %d", i)
		}
		s.RenderFinished = append(s.RenderFinished, sem)
	}
	return nil
}

func (s *SyncObjects) destroySemaphores() {
	for _, sem := range s.ImageAvailable {
		s.drv.DestroySemaphore(sem)
	}
	for _, sem := range s.RenderFinished {
		s.drv.DestroySemaphore(sem)
	}
	s.ImageAvailable, s.RenderFinished = nil, nil
}

// RebuildSemaphores replaces every semaphore after a swapchain recreation,
// sizing render-finished to the new image count. Fences are slot-bound and
// stay as they are. The device must be idle.
func (s *SyncObjects) RebuildSemaphores(images int) error {
	frames := len(s.InFlight)
	s.destroySemaphores()
	return s.createSemaphores(frames, images)
}

func (s *SyncObjects) Destroy() {
	s.destroySemaphores()
	for _, f := range s.InFlight {
		s.drv.DestroyFence(f)
	}
	s.InFlight = nil
}

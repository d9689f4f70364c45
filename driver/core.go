// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"time"
)

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Commit commits a batch of command buffers to the GPU
	// for execution.
	// The order of command buffers in cb is meaningful:
	// batches are executed in commit order, and command
	// buffers within a batch are executed in slice order.
	// fence is signaled when all commands complete
	// execution. Command buffers in cb cannot be used for
	// recording until then.
	// The returned error only reports whether the batch
	// could be submitted. Execution errors are reported
	// by fence.Wait.
	Commit(cb []CmdBuffer, fence Fence) error

	// NewCmdBuffer creates a new command buffer.
	NewCmdBuffer() (CmdBuffer, error)

	// NewFence creates a new fence in the unsignaled
	// state.
	NewFence() (Fence, error)

	// NewBuffer creates a new buffer.
	// Creating a buffer allocates its memory. Destroying
	// it frees the memory.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new image.
	// Creating an image allocates its memory. Destroying
	// it frees the memory.
	NewImage(pf PixelFmt, size Dim3D, layers, levels, samples int, usg Usage) (Image, error)

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// committed to the GPU for execution. The usage is as
// follows:
//
//  1. call Begin to prepare the command buffer for recording
//  2. call Transition/Barrier to synchronize resource access
//  3. call Copy*/Blit/Fill commands
//  4. repeat 2-3 as needed
//  5. call End and, if it succeeds, GPU.Commit
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording.
	// This method must be called before any command
	// is recorded in the command buffer. It needs to
	// be called again if the command buffer is
	// executed or reset.
	Begin() error

	// IsRecording returns whether the command buffer
	// has begun but not yet ended.
	IsRecording() bool

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// CopyBufToImg copies data from a buffer to
	// an image.
	// The image subresources must be in the LCopyDst
	// or LCommon layout.
	CopyBufToImg(param *BufImgCopy)

	// CopyImgToBuf copies data from an image to
	// a buffer.
	// The image subresources must be in the LCopySrc
	// or LCommon layout.
	CopyImgToBuf(param *BufImgCopy)

	// BlitImage copies a region of an image into
	// a region of another image, resampling and
	// converting between formats as needed.
	BlitImage(param *ImageBlit)

	// Fill fills a buffer range with copies of
	// a byte value.
	// off and size must be aligned to 4 bytes.
	Fill(buf Buffer, off int64, value byte, size int64)

	// Barrier inserts a number of global barriers
	// in the command buffer.
	Barrier(b []Barrier)

	// Transition inserts a number of image layout
	// transitions in the command buffer.
	Transition(t []Transition)

	// End ends command recording and prepares the
	// command buffer for execution.
	// New recordings are not allowed until the
	// command buffer is executed or reset.
	// Upon failure, the command buffer is reset.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	Reset() error
}

// Fence is the interface that defines a device-to-host
// completion signal.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or timeout
	// elapses, in which case it returns ErrTimeout.
	// If the work associated with the fence failed, the
	// execution error is returned.
	Wait(timeout time.Duration) error

	// Signaled returns whether the fence is signaled.
	Signaled() bool

	// Reset sets the fence back to the unsignaled state.
	// It must not be called while the fence is in use by
	// a pending commit.
	Reset() error
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// BufImgCopy describes the parameters of a copy command
// that copies data between a buffer and an image.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	// Stride specifies the addressing of image data
	// in the buffer. It is given in pixels.
	// Stride[0] refers to the row length and Stride[1]
	// refers to the image height.
	Stride [2]int
	Img    Image
	ImgOff Off3D
	Layer  int
	Level  int
	Size   Dim3D
	Layers int
}

// ImageBlit describes the parameters of a blit command.
type ImageBlit struct {
	From      Image
	FromLayer int
	FromLevel int
	FromOff   Off3D
	FromSize  Dim3D
	To        Image
	ToLayer   int
	ToLevel   int
	ToOff     Off3D
	ToSize    Dim3D
	Filter    Filter
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SVertexInput Sync = 1 << iota
	SVertexShading
	SFragmentShading
	SComputeShading
	SColorOutput
	SDSOutput
	SDraw
	SCopy
	SHost
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AVertexBufRead Access = 1 << iota
	AIndexBufRead
	AColorRead
	AColorWrite
	ADSRead
	ADSWrite
	ACopyRead
	ACopyWrite
	AShaderRead
	AShaderWrite
	AHostRead
	AHostWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LPreinitialized
	LCommon
	LColorTarget
	LDSTarget
	LCopySrc
	LCopyDst
	LShaderRead
)

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case LUndefined:
		return "Undefined"
	case LPreinitialized:
		return "Preinitialized"
	case LCommon:
		return "Common"
	case LColorTarget:
		return "ColorTarget"
	case LDSTarget:
		return "DSTarget"
	case LCopySrc:
		return "CopySrc"
	case LCopyDst:
		return "CopyDst"
	case LShaderRead:
		return "ShaderRead"
	}
	return "Layout(?)"
}

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// Transition represents a layout transition on a
// range of image subresources.
type Transition struct {
	Barrier

	LayoutBefore Layout
	LayoutAfter  Layout
	Img          Image
	Layer        int
	Layers       int
	Level        int
	Levels       int
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample
	// The resource can provide vertex data for draw calls.
	// Valid only for Buffer.
	UVertexData
	// The resource can provide index data for draw calls.
	// Valid only for Buffer.
	UIndexData
	// The resource can be used as render target.
	// Valid only for Image.
	URenderTarget
	// The resource can be the source of copy commands.
	UCopySrc
	// The resource can be the destination of copy commands.
	UCopyDst
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed. When a larger buffer
// is necessary, a new one must be created and the data
// must be copied explicitly.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	// Non-visible memory cannot be accessed by the CPU.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	// The slice is valid for the lifetime of the buffer.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	// This value is immutable.
	Cap() int64
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	// Color, 8-bit channels.
	RGBA8un PixelFmt = iota
	RGBA8sRGB
	BGRA8un
	RG8un
	R8un
	// Color, 32-bit channels.
	RGBA32f
	RG32f
	R32f
	// Depth/Stencil.
	D16un
	D32f
	D24unS8ui
	D32fS8ui
)

// Size returns the number of bytes that a pixel of
// format f occupies.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA8un, RGBA8sRGB, BGRA8un:
		return 4
	case RG8un:
		return 2
	case R8un:
		return 1
	case RGBA32f:
		return 16
	case RG32f:
		return 8
	case R32f:
		return 4
	case D16un:
		return 2
	case D32f, D24unS8ui:
		return 4
	case D32fS8ui:
		return 8
	}
	return 0
}

// IsDS returns whether f is a depth/stencil format.
func (f PixelFmt) IsDS() bool {
	switch f {
	case D16un, D32f, D24unS8ui, D32fS8ui:
		return true
	}
	return false
}

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// Image is the interface that defines a GPU image.
// Direct access to image memory is not provided, so copying
// data from the CPU to an image resource requires the use
// of a staging buffer.
type Image interface {
	Destroyer

	// NewView creates a new image view.
	// Image views represent a typed view of image storage.
	// Its type must be valid according to the image from
	// which it is created and the parameters given when
	// calling this method.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView(typ ViewType, layer, layers, level, levels int) (ImageView, error)
}

// ViewType is the type of a resource view.
type ViewType int

// View types.
const (
	IView2D ViewType = iota
	IView3D
	IViewCube
	IView2DArray
	IViewCubeArray
	IView2DMS
	IView2DMSArray
)

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the Image from which the view was
	// created.
	Image() Image
}

// Filter is the type of sampler filters.
type Filter int

// Filters.
const (
	FNearest Filter = iota
	FLinear
)

// Limits describes implementation limits.
// These may vary across drivers and devices.
type Limits struct {
	// Maximum width and height of 2D images.
	MaxImage2D int
	// Maximum width and height of cube images.
	MaxImageCube int
	// Maximum width, height and depth of 3D images.
	MaxImage3D int
	// Maximum number of layers in an image.
	MaxLayers int
	// Maximum sample count of an image.
	MaxSamples int
	// Maximum size of a buffer in bytes.
	MaxBuffer int64
}

// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"fmt"
	"log"
	"time"

	"github.com/gviegas/devres/driver"
)

// Example_copy uploads pixel data to an image through a
// staging buffer and then reads it back.
func Example_copy() {
	dim := driver.Dim3D{Width: 2, Height: 2, Depth: 1}
	img, err := gpu.NewImage(driver.RGBA8un, dim, 1, 1, 1, driver.UCopySrc|driver.UCopyDst|driver.UShaderSample)
	if err != nil {
		log.Fatal(err)
	}
	defer img.Destroy()
	stg, err := gpu.NewBuffer(16, true, driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		log.Fatal(err)
	}
	defer stg.Destroy()
	copy(stg.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})

	cb, err := gpu.NewCmdBuffer()
	if err != nil {
		log.Fatal(err)
	}
	defer cb.Destroy()
	fence, err := gpu.NewFence()
	if err != nil {
		log.Fatal(err)
	}
	defer fence.Destroy()

	if err = cb.Begin(); err != nil {
		log.Fatal(err)
	}
	cb.Transition([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SNone,
			SyncAfter:    driver.SCopy,
			AccessBefore: driver.ANone,
			AccessAfter:  driver.ACopyWrite,
		},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCopyDst,
		Img:          img,
		Layers:       1,
		Levels:       1,
	}})
	param := driver.BufImgCopy{
		Buf:    stg,
		Stride: [2]int{2, 2},
		Img:    img,
		Size:   dim,
		Layers: 1,
	}
	cb.CopyBufToImg(&param)
	cb.Fill(stg, 0, 0, 16)
	cb.Transition([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SCopy,
			SyncAfter:    driver.SCopy,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  driver.ACopyRead,
		},
		LayoutBefore: driver.LCopyDst,
		LayoutAfter:  driver.LCopySrc,
		Img:          img,
		Layers:       1,
		Levels:       1,
	}})
	cb.CopyImgToBuf(&param)
	if err = cb.End(); err != nil {
		log.Fatal(err)
	}
	if err = gpu.Commit([]driver.CmdBuffer{cb}, fence); err != nil {
		log.Fatal(err)
	}
	if err = fence.Wait(time.Second); err != nil {
		log.Fatal(err)
	}
	fmt.Println(stg.Bytes())

	// Output:
	// [1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16]
}

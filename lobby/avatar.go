package lobby

import (
	"fmt"
	"image"
)

// ToImage 把后端的自下而上行序转换成 image.RGBA（自上而下）
func (a *Avatar) ToImage() (*image.RGBA, error) {
	if a == nil {
		return nil, nil
	}
	stride := a.Width * 4
	if a.Width <= 0 || a.Height <= 0 || len(a.Pix) != stride*a.Height {
		return nil, fmt.Errorf("avatar %dx%d with %d bytes", a.Width, a.Height, len(a.Pix))
	}
	img := image.NewRGBA(image.Rect(0, 0, a.Width, a.Height))
	for y := 0; y < a.Height; y++ {
		src := a.Pix[(a.Height-1-y)*stride : (a.Height-y)*stride]
		copy(img.Pix[y*img.Stride:y*img.Stride+stride], src)
	}
	return img, nil
}

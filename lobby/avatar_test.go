package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvatarToImageFlipsRows(t *testing.T) {
	// 2x2，行序自下而上：第一行是底部
	a := &Avatar{Width: 2, Height: 2, Pix: []byte{
		1, 1, 1, 255, 2, 2, 2, 255, // bottom
		3, 3, 3, 255, 4, 4, 4, 255, // top
	}}
	img, err := a.ToImage()
	require.NoError(t, err)

	assert.Equal(t, uint8(3), img.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(4), img.RGBAAt(1, 0).R)
	assert.Equal(t, uint8(1), img.RGBAAt(0, 1).R)
	assert.Equal(t, uint8(2), img.RGBAAt(1, 1).R)
}

func TestAvatarToImageRejectsBadSize(t *testing.T) {
	_, err := (&Avatar{Width: 2, Height: 2, Pix: []byte{1, 2, 3}}).ToImage()
	assert.Error(t, err)

	var nilAvatar *Avatar
	img, err := nilAvatar.ToImage()
	assert.NoError(t, err)
	assert.Nil(t, img)
}

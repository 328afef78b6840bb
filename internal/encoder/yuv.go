package encoder

import (
	"remote-agent/internal/agenterr"
	"remote-agent/internal/types"
)

// toYUV420 конвертирует кадр BGRA или RGBA в планарный YUV420.
// Плоскости Y, U, V идут подряд; U и V усреднены по блокам 2x2.
func toYUV420(raw *types.RawFrame) ([]byte, error) {
	w, h := raw.Width, raw.Height
	if len(raw.Data) < w*h*4 {
		return nil, agenterr.Newf(agenterr.KindEncoding,
			"frame data too short: %d bytes for %dx%d", len(raw.Data), w, h)
	}

	var rOff, bOff int
	switch raw.Format {
	case types.PixelFormatRGBA:
		rOff, bOff = 0, 2
	case types.PixelFormatBGRA:
		rOff, bOff = 2, 0
	default:
		return nil, agenterr.Newf(agenterr.KindEncoding, "unsupported pixel format: %s", raw.Format)
	}

	cw, ch := (w+1)/2, (h+1)/2
	out := make([]byte, w*h+2*cw*ch)
	yPlane := out[:w*h]
	uPlane := out[w*h : w*h+cw*ch]
	vPlane := out[w*h+cw*ch:]

	for y := 0; y < h; y++ {
		row := y * w * 4
		for x := 0; x < w; x++ {
			i := row + x*4
			r := int(raw.Data[i+rOff])
			g := int(raw.Data[i+1])
			b := int(raw.Data[i+bOff])

			yPlane[y*w+x] = clampByte(((66*r+129*g+25*b+128)>>8)+16)

			// Цветность берем по одному пикселю на блок 2x2
			if y%2 == 0 && x%2 == 0 {
				ci := (y/2)*cw + x/2
				uPlane[ci] = clampByte(((-38*r-74*g+112*b+128)>>8)+128)
				vPlane[ci] = clampByte(((112*r-94*g-18*b+128)>>8)+128)
			}
		}
	}

	return out, nil
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

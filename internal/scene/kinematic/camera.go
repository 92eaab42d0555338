package kinematic

import (
	"image"
	"image/color"

	"domin/internal/geom"
)

var (
	tableColor    = color.RGBA{R: 140, G: 110, B: 80, A: 255}
	objectColor   = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	effectorColor = color.RGBA{R: 40, G: 80, B: 220, A: 255}
)

// view is an orthographic top-down window centered on a root-frame point.
type view struct {
	center geom.Vec3
	halfX  float64
	halfY  float64
}

// CameraImages renders the named camera for every environment. The front
// camera sees the whole workspace; the wrist camera follows the hand.
func (s *Sim) CameraImages(camera string) ([]*image.RGBA, error) {
	spec, ok := s.manifest.Camera(camera)
	if !ok {
		return nil, s.notFound("camera", camera)
	}
	out := make([]*image.RGBA, s.numEnvs)
	for env := range s.numEnvs {
		v := view{halfX: 0.4, halfY: 0.3}
		if camera == "wrist" {
			v = view{center: s.eePose(env).Pos.Sub(s.origins[env]), halfX: 0.15, halfY: 0.12}
		}
		out[env] = s.render(env, spec.Width, spec.Height, v)
	}
	return out, nil
}

func (s *Sim) render(env, width, height int, v view) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = tableColor.R, tableColor.G, tableColor.B, tableColor.A
	}
	origin := s.origins[env]
	for _, obj := range s.manifest.Objects {
		pos := s.objects[obj.Name][env].Pos.Sub(origin)
		// Lifted objects render brighter.
		c := objectColor
		c.G = uint8(min(255, float64(c.G)+pos.Z*400))
		s.fillRect(img, v, pos, obj.Size.X/2, obj.Size.Y/2, c)
	}
	ee := s.eePose(env).Pos.Sub(origin)
	s.fillRect(img, v, ee, 0.015, 0.015, effectorColor)
	return img
}

func (s *Sim) fillRect(img *image.RGBA, v view, center geom.Vec3, hx, hy float64, c color.RGBA) {
	b := img.Bounds()
	toPixel := func(x, y float64) (int, int) {
		px := (x - v.center.X + v.halfX) / (2 * v.halfX) * float64(b.Dx())
		py := (v.halfY - (y - v.center.Y)) / (2 * v.halfY) * float64(b.Dy())
		return int(px), int(py)
	}
	x0, y0 := toPixel(center.X-hx, center.Y+hy)
	x1, y1 := toPixel(center.X+hx, center.Y-hy)
	r := image.Rect(x0, y0, x1+1, y1+1).Intersect(b)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

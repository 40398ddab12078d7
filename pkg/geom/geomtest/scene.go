// Package geomtest builds synthetic two-view scenes with known epipolar geometry
package geomtest

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Scene is a set of 3D points seen by two cameras
type Scene struct {
	A []r2.Point // Projections into the first camera
	B []r2.Point // Projections into the second camera, with noise added
	F *mat.Dense // True fundamental matrix, bᵀ·F·a = 0
}

// Camera intrinsics of a 1280x720 frame
var K = mat.NewDense(3, 3, []float64{
	800, 0, 640,
	0, 800, 360,
	0, 0, 1,
})

// NewScene generates n random points in front of both cameras. The second camera is
// rotated by yaw radians about the vertical axis and translated by t.
// Gaussian noise with standard deviation sigma (pixels) is added to the second image only.
func NewScene(n int, yaw float64, t [3]float64, sigma float64, seed uint64) *Scene {
	rng := rand.New(rand.NewPCG(seed, 7))
	c, s := math.Cos(yaw), math.Sin(yaw)
	R := mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})

	scene := &Scene{}
	for i := 0; i < n; i++ {
		X := mat.NewVecDense(3, []float64{
			-2 + 4*rng.Float64(),
			-1.5 + 3*rng.Float64(),
			4 + 6*rng.Float64(),
		})
		scene.A = append(scene.A, project(X))

		var X2 mat.VecDense
		X2.MulVec(R, X)
		X2.AddVec(&X2, mat.NewVecDense(3, t[:]))
		p := project(&X2)
		p.X += sigma * rng.NormFloat64()
		p.Y += sigma * rng.NormFloat64()
		scene.B = append(scene.B, p)
	}

	// F = K⁻ᵀ [t]× R K⁻¹
	var kinv mat.Dense
	if err := kinv.Inverse(K); err != nil {
		panic(err)
	}
	tx := mat.NewDense(3, 3, []float64{
		0, -t[2], t[1],
		t[2], 0, -t[0],
		-t[1], t[0], 0,
	})
	var f mat.Dense
	f.Product(kinv.T(), tx, R, &kinv)
	f.Scale(1/mat.Norm(&f, 2), &f)
	scene.F = &f
	return scene
}

// DefaultScene is a modest sideways camera move
func DefaultScene(n int, sigma float64, seed uint64) *Scene {
	return NewScene(n, 0.05, [3]float64{0.3, 0.05, 0.02}, sigma, seed)
}

func project(X mat.Vector) r2.Point {
	var x mat.VecDense
	x.MulVec(K, X)
	return r2.Point{X: x.AtVec(0) / x.AtVec(2), Y: x.AtVec(1) / x.AtVec(2)}
}

// Collinear returns n points on a single line
func Collinear(n int) []r2.Point {
	pts := make([]r2.Point, n)
	for i := range pts {
		pts[i] = r2.Point{X: 10 + 7*float64(i), Y: 20 + 3*float64(i)}
	}
	return pts
}

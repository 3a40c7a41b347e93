package sprite

// Mat3 is a column-major 3x3 float32 matrix, laid out as three columns of
// three components, matching what shader push constants expect.
//
//	| m[0] m[3] m[6] |
//	| m[1] m[4] m[7] |
//	| m[2] m[5] m[8] |
type Mat3 [9]float32

// UVTransform builds the affine matrix that maps a unit UV quad onto a
// sprite's sub-rectangle. The layer selector z sits in the third column,
// so a homogeneous (u, v, 1) picks up the layer as its third component.
func UVTransform(scaleX, scaleY, translateX, translateY, z float32) Mat3 {
	return Mat3{
		scaleX, 0, 0,
		0, scaleY, 0,
		translateX, translateY, z,
	}
}

// Apply transforms the homogeneous point (u, v, 1) and returns the atlas
// coordinates and layer selector.
func (m Mat3) Apply(u, v float32) (x, y, z float32) {
	x = m[0]*u + m[3]*v + m[6]
	y = m[1]*u + m[4]*v + m[7]
	z = m[2]*u + m[5]*v + m[8]
	return x, y, z
}

// Scale returns the x and y scale factors.
func (m Mat3) Scale() (float32, float32) { return m[0], m[4] }

// Translation returns the x and y offsets.
func (m Mat3) Translation() (float32, float32) { return m[6], m[7] }

// Layer returns the normalized layer selector.
func (m Mat3) Layer() float32 { return m[8] }

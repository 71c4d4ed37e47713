package huffman

// Delta gain values are in 1/8 dB steps.
const DeltaGainStep = 0.125

// deltaGainRegularTree codes gain differences of -2.0 to +1.0 dB for the
// regular and fading gain coding profiles.
var deltaGainRegularTree = Tree{
	{1, 2}, {3, 4}, {-63, -65}, {5, -66}, {-64, 6}, {-80, 7},
	{8, 9}, {-68, 10}, {11, 12}, {-56, -67}, {-61, 13}, {-62, -69},
	{14, 15}, {16, -72}, {-71, 17}, {-70, -60}, {18, -59}, {19, 20},
	{21, -79}, {-57, -73}, {22, -58}, {-76, 23}, {-75, -74}, {-78, -77},
}

// deltaGainClippingTree codes gain differences of -2.0 to +4.0 dB for the
// clipping and ducking gain coding profile.
var deltaGainClippingTree = Tree{
	{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}, {11, 12},
	{13, -65}, {14, -64}, {15, -66}, {16, -67}, {17, 18}, {19, -68},
	{20, -63}, {-69, 21}, {-59, 22}, {-61, -62}, {-60, 23}, {24, -58},
	{-70, -57}, {-56, -71}, {25, 26}, {27, -55}, {-72, 28}, {-54, 29},
	{-53, 30}, {-73, -52}, {31, -51}, {32, 33}, {-74, 34}, {-50, 35},
	{-49, 36}, {37, -75}, {38, -48}, {-76, 39}, {40, -47}, {41, 42},
	{-46, -77}, {43, -45}, {-78, 44}, {-44, 45}, {-79, -43}, {46, -42},
	{-41, 47}, {-80, -40}, {-39, -38}, {-37, -36}, {-35, -34}, {-33, -32},
}

// slopeTree codes the index into SlopeSteepness.
var slopeTree = Tree{
	{1, -57}, {-58, 2}, {3, 4}, {5, 6}, {7, -56},
	{8, -60}, {-61, -55}, {9, -59}, {10, -54}, {-64, 11},
	{-51, 12}, {-62, -50}, {-63, 13}, {-52, -53},
}

// SlopeSteepness maps a slope code index to the node slope.
var SlopeSteepness = [15]float32{
	-3.0518, -1.2207, -0.4883, -0.1953, -0.0781, -0.0313, -0.0050,
	0.0,
	0.0050, 0.0313, 0.0781, 0.1953, 0.4883, 1.2207, 3.0518,
}

// The shared codebooks, built once at package init.
var (
	DeltaGainRegular  = newCodebook("deltaGain regular/fading", deltaGainRegularTree)
	DeltaGainClipping = newCodebook("deltaGain clipping/ducking", deltaGainClippingTree)
	Slope             = newCodebook("slope", slopeTree)
)

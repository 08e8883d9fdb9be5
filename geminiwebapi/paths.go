package geminiwebapi

// pathTable centralizes the positional indices of the response arrays as
// gjson paths. The layout is undocumented upstream and may shift without
// notice; decode.go only dereferences through this table, so tracking an
// upstream change is a one-file constant edit. The Version string names the
// layout a given table was verified against.
type pathTable struct {
	Version string

	// Paths relative to the decoded payload (the JSON-in-JSON body).
	Metadata  string // [cid, rid] pair
	CandList  string // candidate container
	ErrorCode string // nested error code, relative to the envelope line

	// Paths relative to one candidate.
	CandRCID      string
	CandText      string
	CandTextAlt   string // card-content fallback text
	CandThoughts  string
	CandWebImages string
	CandGenFlag   string // non-null when the candidate carries generated images
	CandGenImages string

	// Paths relative to one web image entry.
	WebImgURL   string
	WebImgTitle string
	WebImgAlt   string

	// Paths relative to one generated image entry.
	GenImgURL  string
	GenImgNum  string
	GenImgAlts string
}

var defaultPaths = pathTable{
	Version: "2025-08",

	Metadata:  "1",
	CandList:  "4",
	ErrorCode: "0.5.2.0.1.0",

	CandRCID:      "0",
	CandText:      "1.0",
	CandTextAlt:   "22.0",
	CandThoughts:  "37.0.0",
	CandWebImages: "12.1",
	CandGenFlag:   "12.7.0",
	CandGenImages: "12.7.0",

	WebImgURL:   "0.0.0",
	WebImgTitle: "7.0",
	WebImgAlt:   "0.4",

	GenImgURL:  "0.3.3",
	GenImgNum:  "3.6",
	GenImgAlts: "3.5",
}

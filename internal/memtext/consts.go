package memtext

const (
	// ============================================================================
	// .memmap File Format Tokens
	// ============================================================================

	// SectionOpenBracket marks the start of a section heading
	SectionOpenBracket = "["

	// SectionCloseBracket marks the end of a section heading
	SectionCloseBracket = "]"

	// KeyAssignment separates keys from their values
	KeyAssignment = "="

	// CommentSemicolon marks a comment line
	CommentSemicolon = ";"

	// CommentHash is the alternative comment marker
	CommentHash = "#"

	// ============================================================================
	// Section Names
	// ============================================================================

	// SectionImage describes the image geometry
	SectionImage = "image"

	// SectionPool declares a frame pool; the heading argument names it
	SectionPool = "pool"

	// SectionHole reserves a frame range inside the preceding pool
	SectionHole = "hole"

	// SectionPaging configures the address translator
	SectionPaging = "paging"

	// SectionWindow declares a byte-granular allocation window
	SectionWindow = "window"

	// ============================================================================
	// Key Names
	// ============================================================================

	KeyFrames      = "frames"
	KeyBase        = "base"
	KeyMetadata    = "metadata"
	KeyPool        = "pool"
	KeyDirectories = "directories"
	KeyPages       = "pages"
	KeyKernelSpan  = "kernel-span"
	KeySharedSpan  = "shared-span"
	KeySpace       = "space"
	KeySize        = "size"
	KeyBacking     = "backing"

	// MetadataSelf asks a pool to host its own bitmap
	MetadataSelf = "self"

	// SpaceKernel binds a window to the kernel address space
	SpaceKernel = "kernel"

	// ============================================================================
	// Number Formats
	// ============================================================================

	// HexPrefix identifies hexadecimal numbers
	HexPrefix = "0x"

	// Size suffixes use binary multiples (1KB = 1024 bytes)
	SuffixKB = "KB"
	SuffixMB = "MB"
	SuffixGB = "GB"

	// ============================================================================
	// Buffer and Parsing Sizes
	// ============================================================================

	// ScannerInitialBufferSize is the initial buffer size for the .memmap scanner
	ScannerInitialBufferSize = 64 * 1024 // 64KB

	// ScannerMaxLineSize is the maximum line size for the .memmap scanner
	ScannerMaxLineSize = 1024 * 1024 // 1MB

	// InitialSectionCapacity is the estimated number of sections for pre-allocation
	InitialSectionCapacity = 16
)

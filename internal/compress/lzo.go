package compress

// LZO is a recognized Algorithm value with no implementation backing it:
// no pure-Go LZO compressor exists in the retrieval pack or a vetted
// ecosystem equivalent (the only widely used Go LZO bindings are cgo,
// which would make the archiver non-portable). Selecting or reading it
// fails ErrUnsupported via NewCompressor/NewDecompressor in compress.go.

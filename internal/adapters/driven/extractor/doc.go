// Package extractor turns uploaded book files into plain text. Each
// format lives in its own subpackage; the Registry routes a file to
// the first extractor that supports its type.
package extractor

// Package chunked splits a file of known size into byte ranges and joins
// downloaded ranges back into the original file.
//
// # Planning
//
// [NewPlan] computes the ranges for a file. A file no larger than the chunk
// size gets a single whole-file range and [Plan.Whole] reports true; callers
// then download it without a Range header and skip reassembly.
//
//	plan, err := chunked.NewPlan(250, 100)
//	// plan.Ranges: {1 0 99} {2 100 199} {3 200 249}
//
// Ranges are inclusive on both ends, like the HTTP Range header, and never
// reach past size-1.
//
// # Part Files
//
// Each downloaded range is stored in its own local file. The file name
// encodes the part index and the total part count, so a set of part files can
// be put back in order from the names alone:
//
//	{stem}_part{index}of{total}{ext}
//	archive_part2of3.7z
//
// [PartName] builds a name and [ParsePartName] decodes one.
//
// # Reassembly
//
// [Reassemble] validates a set of part files, concatenates them in index
// order into the output file and removes each part once it has been copied.
// The order in which part paths are supplied does not matter.
package chunked

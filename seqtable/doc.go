// Package seqtable builds per-sample sequence count tables from clustering
// output and merges them into the global sequence catalog.
//
// A per-sample table is a TSV file with a header row naming the sample:
//
//	sequence	S1
//	ACGT	5
//	TTTT	2
//
// Merging assigns every row a global identifier "sample:count:localIndex",
// where localIndex is the zero-based row position within the sample's table.
// The catalog is FASTA keyed by global identifier, and the summary lists
// each sample's total count:
//
//	>S1:5:0
//	ACGT
//	>S1:2:1
//	TTTT
//
//	S1	7
//
// The count is part of the identifier so catalog entries can be read without
// the tables. Uniqueness comes from (sample, localIndex) alone.
package seqtable

// Package liftover maps genomic intervals between two assemblies using the
// aligned blocks of a UCSC chain file.  The Index groups blocks by source
// contig into interval trees that answer overlap queries from many
// goroutines concurrently; the Mapper applies the block algebra (clipping,
// offset arithmetic, negative-strand reflection) to produce target
// intervals.
package liftover

/*
The delta package computes sync previews. It answers, without mutating
either tree, the question "what would this sync rewrite?".

A preview enumerates the regular files under the source as FileRecords, and
derives the transfer set from the backend's semantics:

1) A backend with no delta awareness (plain copy) rewrites every source file,
   so the transfer set is the full source set.
2) A delta-aware backend only rewrites files that are missing at the
   destination, or whose size or modification time differ.

Comparisons use size and whole-second modification time only. Contents are
never read, so previewing a large tree costs one stat per file.

Enumeration is ordered lexicographically by relative path, which makes two
previews over an unchanged filesystem byte-for-byte identical.
*/
package delta

// Command clipforge produces short vertical videos from scene scripts: it
// resolves stock footage per scene, synthesizes narration, encodes clips in
// parallel, and merges them with burned subtitles and background music.
package main

// Moderation decision pipeline for user submissions.
//
// A Checker takes a Submission (title, description, and a directory of files), selects which files to send for image labeling, fans out label extraction calls concurrently, merges the labels, asks a text verifier to score the title and description alongside those labels, and reduces all of that to a tri-state Verdict.
//
// The two external collaborators (ImageLabeler and TextVerifier) are interfaces, with implementations in the visual and textcheck sub-packages. Every failure path resolves to a Verdict; nothing in this package returns an error to the caller.
package moderation

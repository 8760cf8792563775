// Text moderation verifiers: score a submission's title and description, together with the labels extracted from its artifacts, as a confidence in [0,1] that the content is acceptable.
package textcheck

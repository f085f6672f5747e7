// Package structured turns free-form model text into validated JSON.
//
// Most open-weight serving backends have no reliable constrained-decoding
// mode, so structured output is treated as best effort. The pipeline works
// through three tiers, short-circuiting on the first success:
//
//  1. Native: ask the backend for JSON directly when it supports that, then
//     parse the reply strictly.
//  2. Extraction and repair: locate the outermost balanced object or array in
//     the raw text, strip code fences and prose, and if parsing still fails
//     apply a small set of syntactic repairs and reparse once.
//  3. Bounded retry: re-invoke the adapter with a stricter-formatting prompt
//     amendment and exponential backoff, restarting at tier 1 each attempt.
//
// When every tier is exhausted the caller receives an *Error naming the tier
// that last failed together with the final raw text.
package structured

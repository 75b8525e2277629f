// Package resolve turns scraped works into catalog identities.
//
// Resolution runs in two sequential phases. Retrieval queries the catalog
// once per distinct search term of each work and merges the candidates by
// catalog id. Matching groups works that have at least one candidate into
// fixed-size batches and asks the language model to pick the right
// candidate for every task of a batch independently. Results are kept in
// positional slices so the output order always equals the input order and a
// failed batch or work never affects its neighbours.
package resolve

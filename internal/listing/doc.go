// Package listing scrapes seasonal broadcast tables from an anime listing
// page. It knows nothing about the catalog; its output is the raw work list
// that title cleaning and resolution start from.
package listing

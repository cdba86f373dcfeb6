// Package sorting models recordings and spike sortings as the curation
// pipeline sees them, and applies merge groups to produce curated views.
//
// Spike trains are stored as frame indices into the recording; seconds are
// derived from the recording's timestamps only at export time. The Store
// interface is the seam to whatever holds the raw data. FileStore keeps both
// objects as JSON documents under a root directory.
package sorting

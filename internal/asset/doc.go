// Package asset defines the media domain model shared by the client pipeline
// and the asset service: the durable Descriptor, duplicate Candidates with
// their usage locations, and the pending-asset lifecycle states.
package asset

// Package service contains application services that sit between the HTTP
// layer and infrastructure. The auth subpackage issues and validates the
// bearer tokens that guard the job API.
package service

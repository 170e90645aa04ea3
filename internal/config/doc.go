// Package config defines the crawl configuration surface and its validation.
package config

// Package maintenance cleans, erases and reports on the thumbnail cache.
package maintenance

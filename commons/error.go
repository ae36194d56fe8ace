package commons

import (
	"errors"
	"fmt"
)

// NetworkError contains network transport failure or timeout information
type NetworkError struct {
	URL     string
	Timeout bool
	Cause   error
}

// NewNetworkError creates an error for a network transport failure
func NewNetworkError(url string, cause error) error {
	return &NetworkError{
		URL:   url,
		Cause: cause,
	}
}

// NewNetworkTimeoutError creates an error for a network timeout
func NewNetworkTimeoutError(url string, cause error) error {
	return &NetworkError{
		URL:     url,
		Timeout: true,
		Cause:   cause,
	}
}

// Error returns error message
func (err *NetworkError) Error() string {
	if err.Timeout {
		return fmt.Sprintf("network timeout for %q: %v", err.URL, err.Cause)
	}
	return fmt.Sprintf("network failure for %q: %v", err.URL, err.Cause)
}

// Is tests type of error
func (err *NetworkError) Is(other error) bool {
	_, ok := other.(*NetworkError)
	return ok
}

// Unwrap returns the cause
func (err *NetworkError) Unwrap() error {
	return err.Cause
}

// ToString stringifies the object
func (err *NetworkError) ToString() string {
	return "<NetworkError>"
}

// IsNetworkError evaluates if the given error is a network error
func IsNetworkError(err error) bool {
	return errors.Is(err, &NetworkError{})
}

// StorageError contains persistent store read/write failure information
type StorageError struct {
	Partition string
	Key       string
	Cause     error
}

// NewStorageError creates an error for a persistent store failure
func NewStorageError(partition string, key string, cause error) error {
	return &StorageError{
		Partition: partition,
		Key:       key,
		Cause:     cause,
	}
}

// Error returns error message
func (err *StorageError) Error() string {
	return fmt.Sprintf("storage failure on partition %q, key %q: %v", err.Partition, err.Key, err.Cause)
}

// Is tests type of error
func (err *StorageError) Is(other error) bool {
	_, ok := other.(*StorageError)
	return ok
}

// Unwrap returns the cause
func (err *StorageError) Unwrap() error {
	return err.Cause
}

// ToString stringifies the object
func (err *StorageError) ToString() string {
	return "<StorageError>"
}

// IsStorageError evaluates if the given error is a storage error
func IsStorageError(err error) bool {
	return errors.Is(err, &StorageError{})
}

// NoCacheEntryError contains cache entry not found information
type NoCacheEntryError struct {
	Partition string
	Key       string
}

// NewNoCacheEntryError creates an error for cache entry not found
func NewNoCacheEntryError(partition string, key string) error {
	return &NoCacheEntryError{
		Partition: partition,
		Key:       key,
	}
}

// Error returns error message
func (err *NoCacheEntryError) Error() string {
	return fmt.Sprintf("no cache entry for partition %q, key %q", err.Partition, err.Key)
}

// Is tests type of error
func (err *NoCacheEntryError) Is(other error) bool {
	_, ok := other.(*NoCacheEntryError)
	return ok
}

// ToString stringifies the object
func (err *NoCacheEntryError) ToString() string {
	return "<NoCacheEntryError>"
}

// IsNoCacheEntryError evaluates if the given error is a no cache entry error
func IsNoCacheEntryError(err error) bool {
	return errors.Is(err, &NoCacheEntryError{})
}

// QuotaExceededError contains partition quota overflow information
type QuotaExceededError struct {
	Partition string
}

// NewQuotaExceededError creates an error for partition quota overflow
func NewQuotaExceededError(partition string) error {
	return &QuotaExceededError{
		Partition: partition,
	}
}

// Error returns error message
func (err *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded on partition %q", err.Partition)
}

// Is tests type of error
func (err *QuotaExceededError) Is(other error) bool {
	_, ok := other.(*QuotaExceededError)
	return ok
}

// ToString stringifies the object
func (err *QuotaExceededError) ToString() string {
	return "<QuotaExceededError>"
}

// IsQuotaExceededError evaluates if the given error is a quota exceeded error
func IsQuotaExceededError(err error) bool {
	return errors.Is(err, &QuotaExceededError{})
}

// ParseError contains malformed manifest or config entry information
type ParseError struct {
	Subject string
	Cause   error
}

// NewParseError creates an error for a malformed input
func NewParseError(subject string, cause error) error {
	return &ParseError{
		Subject: subject,
		Cause:   cause,
	}
}

// Error returns error message
func (err *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %q: %v", err.Subject, err.Cause)
}

// Is tests type of error
func (err *ParseError) Is(other error) bool {
	_, ok := other.(*ParseError)
	return ok
}

// Unwrap returns the cause
func (err *ParseError) Unwrap() error {
	return err.Cause
}

// ToString stringifies the object
func (err *ParseError) ToString() string {
	return "<ParseError>"
}

// IsParseError evaluates if the given error is a parse error
func IsParseError(err error) bool {
	return errors.Is(err, &ParseError{})
}

// CanceledError contains cancellation information. Cancellation is not a
// failure and must not enter retry accounting.
type CanceledError struct {
	ID string
}

// NewCanceledError creates an error for a canceled operation
func NewCanceledError(id string) error {
	return &CanceledError{
		ID: id,
	}
}

// Error returns error message
func (err *CanceledError) Error() string {
	return fmt.Sprintf("operation %q canceled", err.ID)
}

// Is tests type of error
func (err *CanceledError) Is(other error) bool {
	_, ok := other.(*CanceledError)
	return ok
}

// ToString stringifies the object
func (err *CanceledError) ToString() string {
	return "<CanceledError>"
}

// IsCanceledError evaluates if the given error is a canceled error
func IsCanceledError(err error) bool {
	return errors.Is(err, &CanceledError{})
}

package commons

import (
	"errors"
	"fmt"
	"strings"
)

const (
	errorTypeDelimiter     string = ";"
	errorTypeNetwork       string = "network_error"
	errorTypeStorage       string = "storage_error"
	errorTypeNoCacheEntry  string = "no_cache_entry"
	errorTypeQuotaExceeded string = "quota_exceeded"
	errorTypeParse         string = "parse_error"
	errorTypeCanceled      string = "canceled"
	errorTypeInternalError string = "internal_error"
)

func addErrorTypeToMessage(prefix string, details ...string) string {
	detailsStr := strings.Join(details, errorTypeDelimiter)
	return fmt.Sprintf("%s%s%s", prefix, errorTypeDelimiter, detailsStr)
}

// ErrorToCode converts error to a control message error code string
func ErrorToCode(err error) string {
	if err == nil {
		return ""
	}

	if IsNetworkError(err) {
		var networkErr *NetworkError
		if errors.As(err, &networkErr) {
			return addErrorTypeToMessage(errorTypeNetwork, networkErr.URL, networkErr.Error())
		}
		return addErrorTypeToMessage(errorTypeNetwork, err.Error())
	} else if IsStorageError(err) {
		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			return addErrorTypeToMessage(errorTypeStorage, storageErr.Partition, storageErr.Key, storageErr.Error())
		}
		return addErrorTypeToMessage(errorTypeStorage, err.Error())
	} else if IsNoCacheEntryError(err) {
		var noEntryErr *NoCacheEntryError
		if errors.As(err, &noEntryErr) {
			return addErrorTypeToMessage(errorTypeNoCacheEntry, noEntryErr.Partition, noEntryErr.Key, noEntryErr.Error())
		}
		return addErrorTypeToMessage(errorTypeNoCacheEntry, err.Error())
	} else if IsQuotaExceededError(err) {
		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) {
			return addErrorTypeToMessage(errorTypeQuotaExceeded, quotaErr.Partition, quotaErr.Error())
		}
		return addErrorTypeToMessage(errorTypeQuotaExceeded, err.Error())
	} else if IsParseError(err) {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return addErrorTypeToMessage(errorTypeParse, parseErr.Subject, parseErr.Error())
		}
		return addErrorTypeToMessage(errorTypeParse, err.Error())
	} else if IsCanceledError(err) {
		var canceledErr *CanceledError
		if errors.As(err, &canceledErr) {
			return addErrorTypeToMessage(errorTypeCanceled, canceledErr.ID, canceledErr.Error())
		}
		return addErrorTypeToMessage(errorTypeCanceled, err.Error())
	}

	return addErrorTypeToMessage(errorTypeInternalError, err.Error())
}

// CodeToError converts a control message error code string back to error
func CodeToError(code string) error {
	if len(code) == 0 {
		return nil
	}

	msgarr := strings.Split(code, errorTypeDelimiter)
	errType := msgarr[0]
	details := msgarr[1:]
	message := ""
	if len(details) > 0 {
		message = details[len(details)-1]
	}

	switch errType {
	case errorTypeNetwork:
		if len(details) >= 2 {
			return NewNetworkError(details[0], errors.New(message))
		}
		return NewNetworkError("", errors.New(message))
	case errorTypeStorage:
		if len(details) >= 3 {
			return NewStorageError(details[0], details[1], errors.New(message))
		}
		return NewStorageError("", "", errors.New(message))
	case errorTypeNoCacheEntry:
		if len(details) >= 3 {
			return NewNoCacheEntryError(details[0], details[1])
		}
		return NewNoCacheEntryError("", "")
	case errorTypeQuotaExceeded:
		if len(details) >= 2 {
			return NewQuotaExceededError(details[0])
		}
		return NewQuotaExceededError("")
	case errorTypeParse:
		if len(details) >= 2 {
			return NewParseError(details[0], errors.New(message))
		}
		return NewParseError("", errors.New(message))
	case errorTypeCanceled:
		if len(details) >= 2 {
			return NewCanceledError(details[0])
		}
		return NewCanceledError("")
	default:
		return errors.New(message)
	}
}

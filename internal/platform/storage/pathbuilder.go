package storage

import (
	"fmt"
	"strings"
)

// BuildInvoicePath composes the object key for a rendered invoice document.
// Keys are grouped per order so all documents for one order live together.
func BuildInvoicePath(orderID, fileName string) (string, error) {
	order, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	name, err := validateFileName(fileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("invoices/orders/%s/%s", order, name), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}

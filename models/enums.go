package models

import (
	"encoding/json"
	"errors"
	"strconv"
)

type ContainerStatus string

const (
	ContainerStatusAvailable ContainerStatus = "Available"
	ContainerStatusDepleted  ContainerStatus = "Depleted"
	ContainerStatusArchived  ContainerStatus = "Archived"
	ContainerStatusSuspended ContainerStatus = "Suspended"
)

// convert enum to send response
func (t ContainerStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

// convert input to enum type
func (t *ContainerStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("container status must be string")
	}
	switch str {
	case "Available":
		*t = ContainerStatusAvailable
	case "Depleted":
		*t = ContainerStatusDepleted
	case "Archived":
		*t = ContainerStatusArchived
	case "Suspended":
		*t = ContainerStatusSuspended
	default:
		return errors.New("invalid container status")
	}
	return nil
}

type OrderType string

const (
	OrderTypeStocking  OrderType = "Stocking"
	OrderTypeConsuming OrderType = "Consuming"
)

func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *OrderType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("order type must be string")
	}
	switch str {
	case "Stocking":
		*t = OrderTypeStocking
	case "Consuming":
		*t = OrderTypeConsuming
	default:
		return errors.New("invalid order type")
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusEntered    OrderStatus = "Entered"
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusRetry      OrderStatus = "Retry"
	OrderStatusCompleted  OrderStatus = "Completed"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

func (t OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *OrderStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("order status must be string")
	}
	switch str {
	case "Entered":
		*t = OrderStatusEntered
	case "Pending":
		*t = OrderStatusPending
	case "Processing":
		*t = OrderStatusProcessing
	case "Retry":
		*t = OrderStatusRetry
	case "Completed":
		*t = OrderStatusCompleted
	case "Cancelled":
		*t = OrderStatusCancelled
	default:
		return errors.New("invalid order status")
	}
	return nil
}

type DetailStatus string

const (
	DetailStatusNormal    DetailStatus = "Normal"
	DetailStatusCancelled DetailStatus = "Cancelled"
)

func (t DetailStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *DetailStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("detail status must be string")
	}
	switch str {
	case "Normal":
		*t = DetailStatusNormal
	case "Cancelled":
		*t = DetailStatusCancelled
	default:
		return errors.New("invalid detail status")
	}
	return nil
}

type RoomRole string

const (
	RoomRoleOwner  RoomRole = "Owner"
	RoomRoleMember RoomRole = "Member"
)

func (t RoomRole) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *RoomRole) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("room role must be string")
	}
	switch str {
	case "Owner":
		*t = RoomRoleOwner
	case "Member":
		*t = RoomRoleMember
	default:
		return errors.New("invalid room role")
	}
	return nil
}

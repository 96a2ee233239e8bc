package model

import (
	"github.com/pkg/errors"
)

var (
	ErrConfig  = errors.New("configuration error")
	ErrRecords = errors.New("records file error")
)

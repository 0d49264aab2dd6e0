package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var ErrorForbidden = errors.New("forbidden")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

package repositories

import (
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/providers"
)

// Rows that do not fit the entity are reported as store decode failures, not
// as "not found".
func decodeOne[T any](rec providers.Record) (*T, error) {
	v, err := providers.DecodeRecord[T](rec)
	if err != nil {
		return nil, &providers.StoreError{
			Code:    constants.ErrCodeStoreDecode,
			Message: constants.GetErrorMessage(constants.ErrCodeStoreDecode),
			Err:     err,
		}
	}
	return &v, nil
}

func decodeAll[T any](rows []providers.Record) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, rec := range rows {
		v, err := decodeOne[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func first[T any](rows []providers.Record) (*T, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeOne[T](rows[0])
}

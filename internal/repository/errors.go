package repository

import "errors"

// ErrNotFound は更新・削除対象の行が存在しない場合に返す。
// 単一行の取得では見つからない場合にエラーではなくnilを返す。
var ErrNotFound = errors.New("record not found")

package global

import (
	"log"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================
func LogCallStack() {
	r := recover()
	if r == nil {
		return
	}
	log.Printf("Panic Recovered! Error:\n%v", r)
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	log.Printf("Stack trace:\n%s\n", buf[:n])
}

func GetAbsolutePath(relativePath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return wd + string(os.PathSeparator) + relativePath, nil
}

// ==========================================================================================

// Convert string to int with default value with included minimum or maximum
func Str2IntDefaultMinMax[T int | int8 | int16 | int32 | int64](s string, d, minlmt, maxlmt T) (T, bool) {
	out, ok := Str2IntCheck[T](s)
	if ok {
		if out < minlmt || out > maxlmt {
			return d, false
		}
		return out, true
	}
	return d, false
}

func Str2IntCheck[T int | int8 | int16 | int32 | int64](s string) (T, bool) {
	var out T
	if len(s) == 0 {
		return out, false
	}
	idx := 0
	isN := s[idx] == '-'
	if isN {
		idx++
		if len(s) == 1 {
			return out, false
		}
	} else if s[idx] == '+' {
		idx++
	}
	for i := idx; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return out, false
		}
		out = out*10 + T(s[i]-'0')
	}
	if isN {
		out = -out
	}
	return out, true
}

func Str2Int[T int | int8 | int16 | int32 | int64](s string) T {
	var out T
	if len(s) == 0 {
		return out
	}
	idx := 0
	isN := s[idx] == '-'
	if isN {
		idx++
	}
	for i := idx; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return out
		}
		out = out*10 + T(s[i]-'0')
	}
	if isN {
		return -out
	}
	return out
}

func Str2Bool(s string, d bool) bool {
	switch ASCIIToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "enabled":
		return true
	case "0", "false", "no", "off", "disabled":
		return false
	}
	return d
}

func Int2Str(val int) string {
	if val == 0 {
		return "0"
	}
	buf := make([]byte, 10)
	return int2str(buf, val)
}

func Int64ToStr(val int64) string {
	if val == 0 {
		return "0"
	}
	buf := make([]byte, 20)
	return int2str(buf, val)
}

func Uint64ToStr(val uint64) string {
	if val == 0 {
		return "0"
	}
	buf := make([]byte, 20)
	return uint2str(buf, val)
}

func uint2str[T uint16 | uint32 | uint64](buf []byte, val T) string {
	i := len(buf)
	for val >= 10 {
		i--
		buf[i] = '0' + byte(val%10)
		val /= 10
	}
	i--
	buf[i] = '0' + byte(val)

	return string(buf[i:])
}

func int2str[T int | int8 | int16 | int32 | int64](buf []byte, val T) string {
	isNeg := val < 0
	if isNeg {
		val *= -1
	}
	i := len(buf)
	for val >= 10 {
		i--
		buf[i] = '0' + byte(val%10)
		val /= 10
	}
	i--
	buf[i] = '0' + byte(val)

	if isNeg {
		return "-" + string(buf[i:])
	}
	return string(buf[i:])
}

//====================================================

func ASCIIToLower(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := range len(s) {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += byte(DeltaRune)
		}
		b.WriteByte(c)
	}
	return b.String()
}

func ASCIIToUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := range len(s) {
		c := s[i]
		if 'a' <= c && c <= 'z' {
			c -= byte(DeltaRune)
		}
		b.WriteByte(c)
	}
	return b.String()
}

func ASCIIPascal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := range len(s) {
		c := s[i]
		if 'a' <= c && c <= 'z' && (i == 0 || s[i-1] == ' ' || s[i-1] == '-') {
			c -= byte(DeltaRune)
		}
		b.WriteByte(c)
	}
	return b.String()
}

// case insensitive equality for carrier-supplied reason phrases
func EqualsIgnoreCase(s1, s2 string) bool {
	return ASCIIToLower(s1) == ASCIIToLower(s2)
}

//==================================================

func Any[T any](items []*T, predicate func(*T) bool) bool {
	return slices.ContainsFunc(items, predicate)
}

func Find[T any](items []*T, predicate func(*T) bool) *T {
	for _, item := range items {
		if predicate(item) {
			return item
		}
	}
	return nil
}

func Filter[T any](items []*T, predicate func(*T) bool) []*T {
	var result []*T
	for _, item := range items {
		if predicate(item) {
			result = append(result, item)
		}
	}
	return result
}

func Keys[T1 comparable, T2 any](m map[T1]T2) []T1 {
	rslt := make([]T1, 0, len(m))
	for k := range m {
		rslt = append(rslt, k)
	}
	return rslt
}

func Map[T1, T2 any](data []T1, mapper func(T1) T2) []T2 {
	o := make([]T2, len(data))

	for i, datum := range data {
		o[i] = mapper(datum)
	}

	return o
}

//===================================================================

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMilli}).With().Timestamp().Logger()

func InitLogging(level string) {
	lvl, err := zerolog.ParseLevel(ASCIIToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMilli}).With().Timestamp().Str("engine", EngineName).Logger()
}

func LogInfo(lt LogTitle, msg string) {
	LogHandler(LLInformation, lt, msg)
}

func LogWarning(lt LogTitle, msg string) {
	LogHandler(LLWarning, lt, msg)
}

func LogError(lt LogTitle, msg string) {
	LogHandler(LLError, lt, msg)
}

func LogHandler(ll LogLevel, lt LogTitle, msg string) {
	switch ll {
	case LLError:
		logger.Error().Str("title", lt.String()).Msg(msg)
	case LLWarning:
		logger.Warn().Str("title", lt.String()).Msg(msg)
	default:
		logger.Info().Str("title", lt.String()).Msg(msg)
	}
}

// ====================================================

func IsProvisional(sc int) bool {
	return 100 <= sc && sc <= 199
}

func IsFinal(sc int) bool {
	return 200 <= sc && sc <= 699
}

func IsPositive(sc int) bool {
	return 200 <= sc && sc <= 299
}

func IsNegative(sc int) bool {
	return 300 <= sc && sc <= 699
}

func IsRedirection(sc int) bool {
	return 300 <= sc && sc <= 399
}

func IsNegativeClient(sc int) bool {
	return 400 <= sc && sc <= 499
}

func IsNegativeServer(sc int) bool {
	return 500 <= sc && sc <= 599
}

func IsNegativeGlobal(sc int) bool {
	return 600 <= sc && sc <= 699
}

//===================================================================

package stats

import (
	"UCEGo/global"
	"fmt"
	"os"
	"strings"
)

var (
	pipe         chan map[Field]string
	fields       = getAllFields()
	stringfields = CastStringSlice(fields)
)

const (
	StatsFilename       string = "uce_stats_current.txt"
	fileTimestampFormat string = "2006-01-02T15-04-05"
)

func init() {
	global.WtGrp.Add(1)
	pipe = make(chan map[Field]string, global.StatsBufferSize)
	if file, ok := prepareStatsFiles(); ok {
		go writeRecords(file)
	}
}

func prepareStatsFiles() (*os.File, bool) {
	if info, err := os.Stat(StatsFilename); err == nil {
		modtm := info.ModTime().UTC().Format(fileTimestampFormat)
		err = os.Rename(StatsFilename, strings.Replace(StatsFilename, "current", modtm, 1))
		if err != nil {
			global.LogError(global.LTStats, fmt.Sprint("Error renaming existing stats file:", err))
			return nil, false
		}
	}

	file, err := os.OpenFile(StatsFilename, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		global.LogWarning(global.LTStats, fmt.Sprint("Error opening stats file:", err))
		return nil, false
	}

	return file, true
}

func writeRecords(file *os.File) {
	defer global.WtGrp.Done()
	defer file.Close()
	defer file.Sync()
	defer close(pipe)

	writeLine := func(line string) {
		if _, err := fmt.Fprintln(file, line); err != nil {
			fmt.Println("Error writing to file:", err)
		}
	}

	// write headers
	writeLine(strings.Join(stringfields, ";"))

	// write exchange records
	for fieldsmap := range pipe {
		var sb strings.Builder
		for _, f := range fields {
			sb.WriteString(fieldsmap[f])
			sb.WriteString(";")
		}
		writeLine(sb.String()[:sb.Len()-1])
	}
}

/*
Copyright 2022 Canonical Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"sigs.k8s.io/cli-utils/pkg/object"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/operator"
)

func printTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

// analysisRows flattens desired-vs-live diffs into table rows.
func analysisRows(analyses []*operator.Analysis) [][]string {
	var rows [][]string
	appendRows := func(controller, status string, metas []object.ObjMetadata) {
		for _, meta := range metas {
			rows = append(rows, []string{controller, meta.String(), status})
		}
	}
	for _, analysis := range analyses {
		appendRows(analysis.Set.Name, "correct", analysis.Correct)
		appendRows(analysis.Set.Name, "extra", analysis.Extra)
		appendRows(analysis.Set.Name, "missing", analysis.Missing)
	}
	return rows
}

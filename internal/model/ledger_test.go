package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeEntry_UnmarshalLooseTypes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    TimeEntry
		wantErr bool
	}{
		{
			name: "tracker strings",
			in:   `{"id":"99120","projectid":"1001","moduleid":"2002","taskid":"3003","date":"2025-01-06","time":"0.83","billable":"t"}`,
			want: TimeEntry{ID: "99120", ProjectID: "1001", ModuleID: "2002", TaskID: "3003", Date: "2025-01-06", Hours: 0.83, Billable: true},
		},
		{
			name: "numbers and booleans",
			in:   `{"id":99120,"projectid":1001,"moduleid":2002,"taskid":3003,"worktypeid":7,"personid":8,"date":"2025-01-06","time":0.5,"billable":false}`,
			want: TimeEntry{ID: "99120", ProjectID: "1001", ModuleID: "2002", TaskID: "3003", WorktypeID: "7", PersonID: "8", Date: "2025-01-06", Hours: 0.5},
		},
		{
			name: "billable f and nulls",
			in:   `{"taskid":"3003","time":null,"billable":"f","description":"Standup"}`,
			want: TimeEntry{TaskID: "3003", Description: "Standup"},
		},
		{name: "hours not numeric", in: `{"time":"soon"}`, wantErr: true},
		{name: "billable not recognized", in: `{"billable":"maybe"}`, wantErr: true},
		{name: "hours as object", in: `{"time":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got TimeEntry
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeEntry_EncodesTypedFields(t *testing.T) {
	in := TimeEntry{ProjectID: "1", ModuleID: "2", TaskID: "3", Date: "2025-01-06", Hours: 0.83, Billable: true}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out TimeEntry
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

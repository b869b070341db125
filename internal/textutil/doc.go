// Package textutil sanitizes user-supplied names before they touch the
// filesystem: uploaded file names saved under the job directory and the
// download names suggested by the daemon's Content-Disposition header.
package textutil

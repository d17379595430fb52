// Package main (info.go) :
// These methods show what a mirror of a folder would contain, without downloading anything.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	getfilelist "github.com/tanaikech/go-getfilelist"
	drive "google.golang.org/api/drive/v3"

	"github.com/tanaikech/gdmirror/mirror"
)

// infoFolder : One remote folder and the local directory it mirrors to.
type infoFolder struct {
	RemotePath string `json:"remotePath"`
	LocalPath  string `json:"localPath"`
	Files      int    `json:"files"`
	Documents  int    `json:"documents"`
	Bytes      int64  `json:"bytes"`
}

// infoReport : Output of the info command.
type infoReport struct {
	FolderID     string       `json:"folderId"`
	Name         string       `json:"name"`
	TotalFiles   int64        `json:"totalNumberOfFiles"`
	TotalFolders int64        `json:"totalNumberOfFolders"`
	Folders      []infoFolder `json:"folders"`
}

// showInfo : Retrieve the whole tree below the folder and print it as JSON.
func showInfo(ctx context.Context, srv *drive.Service, cfg *config, w io.Writer) error {
	fileList, err := func() (*getfilelist.FileListDl, error) {
		if len(cfg.MimeTypes) > 0 {
			return getfilelist.Folder(cfg.rootID()).MimeType(cfg.MimeTypes).Do(srv)
		}
		return getfilelist.Folder(cfg.rootID()).Do(srv)
	}()
	if err != nil {
		return fmt.Errorf("retrieving file list: %w", err)
	}

	idToName := map[string]string{}
	for i, id := range fileList.FolderTree.Folders {
		idToName[id] = fileList.FolderTree.Names[i]
	}
	report := &infoReport{
		FolderID:     cfg.rootID(),
		TotalFiles:   fileList.TotalNumberOfFiles,
		TotalFolders: fileList.TotalNumberOfFolders - 1,
	}
	if fileList.SearchedFolder != nil {
		report.Name = fileList.SearchedFolder.Name
	}
	paths := mirror.NewPathBuilder(cfg.Directory)
	if cfg.MaxPath > 0 {
		paths.MaxLength = cfg.MaxPath
	}
	trees := make([][]string, 0, len(fileList.FileList))
	for _, e := range fileList.FileList {
		trees = append(trees, e.FolderTree)
	}
	dirs := localDirs(paths, idToName, trees)
	for _, e := range fileList.FileList {
		report.Folders = append(report.Folders, describeFolder(dirs, idToName, e.FolderTree, e.Files))
	}

	r, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", r)
	return err
}

// localDirs : Give every folder of the tree the local directory the mirror
// creates for it. Siblings claim their names in listing order, folders sorted
// by name, so colliding names get the same suffixes as in a real run.
func localDirs(paths mirror.PathBuilder, idToName map[string]string, trees [][]string) map[string]string {
	dirs := map[string]string{}
	children := map[string][]string{}
	for _, tree := range trees {
		switch len(tree) {
		case 0:
		case 1:
			dirs[tree[0]] = paths.Root
		default:
			parent, id := tree[len(tree)-2], tree[len(tree)-1]
			children[parent] = append(children[parent], id)
		}
	}
	queue := make([]string, 0, len(dirs))
	for id := range dirs {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		kids := children[id]
		sort.SliceStable(kids, func(i, j int) bool {
			return strings.ToLower(idToName[kids[i]]) < strings.ToLower(idToName[kids[j]])
		})
		names := mirror.NameSet{}
		for _, kid := range kids {
			if _, done := dirs[kid]; done {
				continue
			}
			dirs[kid] = paths.Join(dirs[id], names.Claim(mirror.Sanitize(idToName[kid])))
			queue = append(queue, kid)
		}
	}
	return dirs
}

// describeFolder : Summarize the files of one folder. tree holds the folder IDs
// from the searched folder down; dirs maps folder IDs to local directories.
func describeFolder(dirs map[string]string, idToName map[string]string, tree []string, files []*drive.File) infoFolder {
	f := infoFolder{RemotePath: "/"}
	for i, id := range tree {
		if i > 0 {
			f.RemotePath = path.Join(f.RemotePath, idToName[id])
		}
		f.LocalPath = filepath.Clean(dirs[id])
	}
	for _, file := range files {
		f.Files++
		if mirror.IsNative(file.MimeType) {
			f.Documents++
			continue
		}
		f.Bytes += file.Size
	}
	return f
}
